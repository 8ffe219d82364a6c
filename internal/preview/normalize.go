// Package preview turns a card's preview payload into an ordered table and
// pages through it.
//
// The backend answers in one of two shapes: {columns, rows} with rows already
// aligned to columns, or a legacy {data: [records]} list of keyed records.
// Decode resolves the shape once; everything downstream sees a Dataset.
package preview

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Placeholder is shown for missing and empty cells.
const Placeholder = "-"

// DefaultColumnOrder is the canonical display order for legacy records.
var DefaultColumnOrder = []string{
	"codigo",
	"nome",
	"cpf_cnpj",
	"email",
	"telefone",
	"endereco",
	"cidade",
	"uf",
	"regiao",
	"status",
	"tipo",
	"data_cadastro",
	"data_ativacao",
	"periodo",
	"consumo_kwh",
	"valor",
	"desconto",
}

// Dataset is a normalized preview table. Every row has exactly len(Columns)
// cells, in column order.
type Dataset struct {
	Columns []string
	Rows    [][]string
}

// Len is the number of rows.
func (d Dataset) Len() int {
	return len(d.Rows)
}

// Payload is a decoded preview body of either wire shape.
type Payload interface {
	Dataset(order []string) Dataset
}

// Table is the {columns, rows} shape.
type Table struct {
	Columns []string
	Rows    [][]any
}

// Records is the legacy list of keyed records.
type Records []map[string]any

// Decode identifies the wire shape of raw.
func Decode(raw []byte) (Payload, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '[' {
		var records Records
		if err := unmarshal(raw, &records); err != nil {
			return nil, fmt.Errorf("decode preview records: %w", err)
		}
		return records, nil
	}

	var probe struct {
		Columns json.RawMessage `json:"columns"`
		Rows    json.RawMessage `json:"rows"`
		Data    json.RawMessage `json:"data"`
	}
	if err := unmarshal(raw, &probe); err != nil {
		return nil, fmt.Errorf("decode preview: %w", err)
	}

	switch {
	case present(probe.Columns) && present(probe.Rows):
		var table Table
		if err := unmarshal(probe.Columns, &table.Columns); err != nil {
			return nil, fmt.Errorf("decode preview columns: %w", err)
		}
		if err := unmarshal(probe.Rows, &table.Rows); err != nil {
			return nil, fmt.Errorf("decode preview rows: %w", err)
		}
		return table, nil
	case present(probe.Data):
		var records Records
		if err := unmarshal(probe.Data, &records); err != nil {
			return nil, fmt.Errorf("decode preview records: %w", err)
		}
		return records, nil
	}
	// Neither shape: an empty preview.
	return Records(nil), nil
}

// Normalize decodes raw and builds its Dataset.
func Normalize(raw []byte, order []string) (Dataset, error) {
	payload, err := Decode(raw)
	if err != nil {
		return Dataset{}, err
	}
	return payload.Dataset(order), nil
}

// Dataset keeps the backend column order. Duplicate columns keep their first
// occurrence and rows are padded or cut to the column count.
func (t Table) Dataset([]string) Dataset {
	keep := make([]int, 0, len(t.Columns))
	seen := make(map[string]bool, len(t.Columns))
	columns := make([]string, 0, len(t.Columns))
	for i, name := range t.Columns {
		if seen[name] {
			continue
		}
		seen[name] = true
		keep = append(keep, i)
		columns = append(columns, name)
	}

	rows := make([][]string, 0, len(t.Rows))
	for _, raw := range t.Rows {
		row := make([]string, len(keep))
		for j, idx := range keep {
			if idx < len(raw) {
				row[j] = Cell(raw[idx])
			} else {
				row[j] = Placeholder
			}
		}
		rows = append(rows, row)
	}
	return Dataset{Columns: columns, Rows: rows}
}

// Dataset derives columns from order, keeping only those present in the first
// record. When none of them are present the first record's keys are used in
// sorted order.
func (r Records) Dataset(order []string) Dataset {
	if len(r) == 0 {
		return Dataset{}
	}
	if len(order) == 0 {
		order = DefaultColumnOrder
	}

	first := r[0]
	columns := make([]string, 0, len(order))
	seen := make(map[string]bool, len(order))
	for _, name := range order {
		if _, ok := first[name]; ok && !seen[name] {
			seen[name] = true
			columns = append(columns, name)
		}
	}
	if len(columns) == 0 {
		for name := range first {
			columns = append(columns, name)
		}
		sort.Strings(columns)
	}

	rows := make([][]string, 0, len(r))
	for _, record := range r {
		row := make([]string, len(columns))
		for j, name := range columns {
			row[j] = Cell(record[name])
		}
		rows = append(rows, row)
	}
	return Dataset{Columns: columns, Rows: rows}
}

// Cell renders one value. Missing, null, empty, false and zero values render
// as Placeholder.
func Cell(v any) string {
	switch val := v.(type) {
	case nil:
		return Placeholder
	case string:
		if strings.TrimSpace(val) == "" {
			return Placeholder
		}
		return val
	case bool:
		if !val {
			return Placeholder
		}
		return "true"
	case json.Number:
		if f, err := val.Float64(); err == nil && f == 0 {
			return Placeholder
		}
		return val.String()
	case float64:
		if val == 0 {
			return Placeholder
		}
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		if val == 0 {
			return Placeholder
		}
		return strconv.Itoa(val)
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(data)
	}
}

func present(raw json.RawMessage) bool {
	return len(raw) > 0 && !bytes.Equal(raw, []byte("null"))
}

func unmarshal(data []byte, dest any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(dest)
}
