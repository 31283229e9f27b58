package sap

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
)

// Queries con nombre definidas en el Service Layer (SQLQueries).
const (
	QueryStockByBin = "pda_stockLoteStatus"
	QueryLots       = "pda_getLotes"
	QueryByLot      = "pda_getByLote"
	QueryBinCode    = "pda_codigoUbi"
)

// ParamList convierte parámetros planos al formato que espera el Service
// Layer: claves ordenadas, cada una como key='value', unidas por coma.
// Las comillas simples del valor se escapan duplicándolas.
func ParamList(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		v := strings.ReplaceAll(params[k], "'", "''")
		parts = append(parts, fmt.Sprintf("%s='%s'", k, v))
	}
	return strings.Join(parts, ",")
}

// ExecuteQuery ejecuta una SQLQuery con nombre y devuelve siempre una lista
// uniforme de filas: acepta tanto una lista desnuda como el sobre
// {value: [...]} del Service Layer. Cero filas no es un error.
func (c *Client) ExecuteQuery(ctx context.Context, name string, params map[string]string) ([]map[string]any, error) {
	req, err := c.authed(ctx)
	if err != nil {
		return nil, err
	}

	var raw json.RawMessage
	err = c.do(ctx, "query/"+name, func() (*resty.Response, error) {
		return req.
			SetBody(map[string]string{"ParamList": ParamList(params)}).
			SetResult(&raw).
			Post(fmt.Sprintf("/SQLQueries('%s')/List", name))
	})
	if err != nil {
		return nil, err
	}
	return normalizeRows(raw)
}

func normalizeRows(raw json.RawMessage) ([]map[string]any, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	var bare []map[string]any
	if err := json.Unmarshal(raw, &bare); err == nil {
		return bare, nil
	}

	var envelope struct {
		Value []map[string]any `json:"value"`
		Items []map[string]any `json:"items"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, &Error{Kind: KindRejected, Message: "Respuesta inválida del servidor"}
	}
	if envelope.Value != nil {
		return envelope.Value, nil
	}
	return envelope.Items, nil
}

// PackageFactor busca las unidades por caja de un artículo (campo UDF1 de
// ItemVersion). ok=false significa que el artículo no tiene factor: el modo
// cajas queda deshabilitado para él, pero no es un error.
func (c *Client) PackageFactor(ctx context.Context, itemCode string) (decimal.Decimal, bool, error) {
	row, err := c.odataFirst(ctx, "ItemVersion", "ItemCode", itemCode)
	if err != nil {
		return decimal.Zero, false, err
	}
	if row == nil {
		return decimal.Zero, false, nil
	}

	factor, ok := DecimalField(row, "UDF1")
	if !ok || !factor.IsPositive() {
		return decimal.Zero, false, nil
	}
	return factor, true, nil
}

// EmployeeName resuelve el nombre de un empleado por su número de tarjeta.
func (c *Client) EmployeeName(ctx context.Context, cardNumber string) (string, error) {
	row, err := c.odataFirst(ctx, "Employee", "CardNumber", cardNumber)
	if err != nil {
		return "", err
	}
	if row == nil {
		return "", nil
	}
	first, _ := row["FirstName"].(string)
	last, _ := row["LastName"].(string)
	return strings.TrimSpace(first + " " + last), nil
}

// DecimalField lee un campo numérico que el Service Layer puede devolver
// como número o como string.
func DecimalField(row map[string]any, key string) (decimal.Decimal, bool) {
	switch v := row[key].(type) {
	case float64:
		return decimal.NewFromFloat(v), true
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(v))
		if err != nil {
			return decimal.Zero, false
		}
		return d, true
	case json.Number:
		d, err := decimal.NewFromString(v.String())
		if err != nil {
			return decimal.Zero, false
		}
		return d, true
	}
	return decimal.Zero, false
}
