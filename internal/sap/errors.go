package sap

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Kind clasifica un fallo una única vez en la frontera con el Service Layer.
// El resto del código nunca vuelve a inspeccionar el cuerpo del error.
type Kind string

const (
	KindValidation Kind = "validation" // pre-flight local, nunca llega a la red
	KindSession    Kind = "session"    // 401/403, sesión caducada o inexistente
	KindNetwork    Kind = "network"    // timeout, conexión rechazada, breaker abierto
	KindRejected   Kind = "rejected"   // el Service Layer rechazó la operación
)

type Error struct {
	Kind    Kind
	Message string
	Status  int
}

func (e *Error) Error() string { return e.Message }

// Retryable indica si el operador puede reintentar la misma acción sin
// cambiar nada (red caída o rechazo de negocio que puede haberse resuelto).
func (e *Error) Retryable() bool {
	return e.Kind == KindNetwork || e.Kind == KindRejected
}

func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func SessionExpired() *Error {
	return &Error{Kind: KindSession, Message: "Sesión expirada. Por favor, inicia sesión nuevamente."}
}

func Network() *Error {
	return &Error{Kind: KindNetwork, Message: "No se pudo conectar al servidor. Verifica la conexión y que el Service Layer esté accesible."}
}

// AsError devuelve el *Error normalizado, envolviendo cualquier otra cosa
// como fallo de red (lo único que puede salir del cliente HTTP sin pasar
// por FromResponse).
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var se *Error
	if ok := asTagged(err, &se); ok {
		return se
	}
	return Network()
}

func asTagged(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// FromResponse convierte una respuesta de error del Service Layer en un
// *Error con un mensaje legible. El Service Layer anida el mensaje bajo
// varias claves según el camino que falló: error.message.value,
// error.message, message.value, message, o un cuerpo de texto plano.
func FromResponse(status int, body []byte) *Error {
	if status == 401 || status == 403 {
		return &Error{Kind: KindSession, Status: status, Message: "Sesión expirada. Por favor, inicia sesión nuevamente."}
	}
	msg := extractMessage(body)
	if msg == "" {
		msg = fmt.Sprintf("Error %d del Service Layer", status)
	}
	return &Error{Kind: KindRejected, Status: status, Message: msg}
}

func extractMessage(body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return ""
	}

	var envelope map[string]any
	if err := json.Unmarshal(body, &envelope); err != nil {
		// Cuerpo no-JSON: el texto es el mensaje.
		return trimmed
	}

	if v, ok := envelope["error"]; ok {
		if msg := messageFrom(v); msg != "" {
			return msg
		}
	}
	if msg := messageFrom(envelope); msg != "" {
		return msg
	}
	return ""
}

// messageFrom busca el mensaje dentro de un nodo de error: puede ser un
// string directo, {message: "..."} o {message: {value: "..."}}.
func messageFrom(node any) string {
	switch v := node.(type) {
	case string:
		return v
	case map[string]any:
		m, ok := v["message"]
		if !ok {
			return ""
		}
		switch mv := m.(type) {
		case string:
			return mv
		case map[string]any:
			if val, ok := mv["value"].(string); ok {
				return val
			}
		}
	}
	return ""
}
