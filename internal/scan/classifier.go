// Package scan distingue lecturas de escáner en modo teclado (HID) del
// tecleo humano por la velocidad entre pulsaciones. Acumula caracteres
// hasta un terminador (Enter/Tab) y entrega el valor completo exactamente
// una vez por lectura.
package scan

import (
	"strings"
	"time"
	"unicode/utf8"
)

// Umbral por defecto: un escáner típico tarda 5-20ms por tecla.
const DefaultThreshold = 35 * time.Millisecond

const (
	KeyEnter = "Enter"
	KeyTab   = "Tab"
)

// Event es una pulsación tal y como la ve la pantalla activa.
type Event struct {
	Key string
	At  time.Time
	// EditableFocus indica que el foco está en un control de edición de
	// texto: en ese caso nunca se suprime el efecto por defecto.
	EditableFocus bool
}

// Disposition dice qué hacer con el efecto por defecto de la tecla.
type Disposition int

const (
	PassThrough Disposition = iota
	Suppress
)

type Classifier struct {
	threshold time.Duration
	onScan    func(string)

	buf      strings.Builder
	last     time.Time
	scanning bool
}

type Option func(*Classifier)

// WithThreshold ajusta el umbral de ritmo de escaneo.
func WithThreshold(d time.Duration) Option {
	return func(c *Classifier) {
		if d > 0 {
			c.threshold = d
		}
	}
}

// New crea un clasificador que invoca onScan una vez por lectura completa.
func New(onScan func(string), opts ...Option) *Classifier {
	c := &Classifier{threshold: DefaultThreshold, onScan: onScan}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Key procesa una pulsación y devuelve qué hacer con su efecto por defecto.
func (c *Classifier) Key(ev Event) Disposition {
	delta := ev.At.Sub(c.last)
	c.last = ev.At

	// Fin de lectura por Enter o Tab.
	if ev.Key == KeyEnter || ev.Key == KeyTab {
		if c.scanning && c.buf.Len() > 0 {
			payload := c.buf.String()
			c.Reset()
			if c.onScan != nil {
				c.onScan(payload)
			}
			return Suppress
		}
		// Sin lectura en curso el terminador sigue su curso normal
		// (p.ej. enviar el formulario con Enter).
		return PassThrough
	}

	// Teclas de control ("Shift", "Backspace", ...) no acumulan.
	if utf8.RuneCountInString(ev.Key) != 1 {
		return PassThrough
	}

	if delta < c.threshold || c.buf.Len() == 0 {
		c.scanning = true
		c.buf.WriteString(ev.Key)
		if ev.EditableFocus {
			return PassThrough
		}
		return Suppress
	}

	// Ritmo humano: se descarta lo acumulado y la acumulación reempieza
	// con esta tecla.
	c.buf.Reset()
	c.buf.WriteString(ev.Key)
	c.scanning = false
	return PassThrough
}

// Reset limpia el estado de acumulación. Cada emisión es independiente.
func (c *Classifier) Reset() {
	c.buf.Reset()
	c.scanning = false
}
