// Package picking mantiene el estado de las listas de picking: un simple
// checklist por documento, sin invariantes de inventario.
package picking

import (
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/Nestorcanpac/pda-app/internal/sap"
)

type Line struct {
	ID       int             `json:"id"`
	ItemCode string          `json:"itemCode"`
	Lot      string          `json:"lot"`
	BinCode  string          `json:"binCode"`
	Quantity decimal.Decimal `json:"quantity"`
	Picked   bool            `json:"picked"` // cogido en almacén
	Staged   bool            `json:"staged"` // en zona de picking

	order int // posición original, para la reordenación estable
}

func (l Line) Done() bool { return l.Picked && l.Staged }

type Document struct {
	ID       string `json:"id"`
	Customer string `json:"customer"`
	Priority string `json:"priority"`
	Lines    []Line `json:"lines"`
}

// Finished indica si todas las líneas del documento están realizadas.
func (d Document) Finished() bool {
	if len(d.Lines) == 0 {
		return false
	}
	for _, l := range d.Lines {
		if !l.Done() {
			return false
		}
	}
	return true
}

// Board es el tablón de pickings de la pantalla: pendientes y finalizados.
type Board struct {
	mu   sync.Mutex
	docs []Document
}

func NewBoard(docs []Document) *Board {
	for di := range docs {
		for li := range docs[di].Lines {
			docs[di].Lines[li].order = li
		}
	}
	return &Board{docs: docs}
}

// Snapshot devuelve los documentos particionados: pendientes primero,
// finalizados después, ambos en su orden original.
func (b *Board) Snapshot() (pending, finished []Document) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, d := range b.docs {
		if d.Finished() {
			finished = append(finished, cloneDoc(d))
		} else {
			pending = append(pending, cloneDoc(d))
		}
	}
	return pending, finished
}

// Toggle invierte una marca (picked o staged) de una línea. Las líneas
// realizadas se hunden al final de su documento manteniendo el orden
// original entre iguales.
func (b *Board) Toggle(docID string, lineID int, mark string) (Document, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for di := range b.docs {
		if b.docs[di].ID != docID {
			continue
		}
		doc := &b.docs[di]
		found := false
		for li := range doc.Lines {
			if doc.Lines[li].ID != lineID {
				continue
			}
			switch mark {
			case "picked":
				doc.Lines[li].Picked = !doc.Lines[li].Picked
			case "staged":
				doc.Lines[li].Staged = !doc.Lines[li].Staged
			default:
				return Document{}, sap.Validation("Marca desconocida: %s", mark)
			}
			found = true
			break
		}
		if !found {
			return Document{}, sap.Validation("La línea %d no existe en el picking %s", lineID, docID)
		}
		sortLines(doc.Lines)
		return cloneDoc(*doc), nil
	}
	return Document{}, sap.Validation("El picking %s no existe", docID)
}

func sortLines(lines []Line) {
	sort.SliceStable(lines, func(i, j int) bool {
		di, dj := lines[i].Done(), lines[j].Done()
		if di != dj {
			return !di // realizadas al final
		}
		return lines[i].order < lines[j].order
	})
}

func cloneDoc(d Document) Document {
	out := d
	out.Lines = append([]Line(nil), d.Lines...)
	return out
}
