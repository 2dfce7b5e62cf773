// Package extract converte o documento enviado em texto puro.
package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ErrMalformed indica que os bytes não formam um PDF legível.
var ErrMalformed = errors.New("malformed pdf")

// PDF extrai o texto de todas as páginas, na ordem, separadas por linha em branco.
// Páginas sem texto (só imagem) são puladas.
type PDF struct{}

func (PDF) Extract(ctx context.Context, payload []byte) (text string, err error) {
	if len(payload) == 0 {
		return "", fmt.Errorf("%w: empty payload", ErrMalformed)
	}
	// o parser entra em pânico com alguns xref corrompidos
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("%w: %v", ErrMalformed, r)
		}
	}()

	rdr, err := pdf.NewReader(bytes.NewReader(payload), int64(len(payload)))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	n := rdr.NumPage()
	parts := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		page := rdr.Page(i)
		if page.V.IsNull() {
			continue
		}
		txt, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		if s := strings.TrimSpace(txt); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n\n"), nil
}
