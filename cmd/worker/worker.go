package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/invoice-parser/app/models"
	"github.com/invoice-parser/helpers/utils"
	"github.com/invoice-parser/internal/processor"
	"go.uber.org/zap"
)

const maxLineSize = 4 << 20

// Record is one output line
type Record struct {
	ID       string                `json:"id"`
	Line     int                   `json:"line"`
	Document models.Document       `json:"document"`
	Report   models.DocumentReport `json:"report"`
}

// Stats counts what Run did
type Stats struct {
	Processed int
	Usable    int
	Skipped   int
}

// Run processes r line by line until EOF or ctx is cancelled. Blank lines
// are ignored; lines that are not a JSON document are logged and skipped.
func Run(ctx context.Context, r io.Reader, w io.Writer, p *processor.Processor, logger *zap.Logger) (stats Stats, err error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	bw := bufio.NewWriter(w)
	defer func() {
		if ferr := bw.Flush(); ferr != nil {
			err = errors.Join(err, fmt.Errorf("flush output: %w", ferr))
		}
	}()
	enc := json.NewEncoder(bw)

	line := 0
	for sc.Scan() {
		line++
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		raw := strings.TrimSpace(sc.Text())
		if raw == "" {
			continue
		}

		var doc models.Document
		if uerr := json.Unmarshal([]byte(raw), &doc); uerr != nil || len(doc) == 0 {
			if uerr == nil {
				uerr = errors.New("document has no sections")
			}
			logger.Warn("line skipped", zap.Int("line", line), zap.Error(uerr))
			stats.Skipped++
			continue
		}

		res := p.Process(doc)
		rec := Record{ID: utils.Fingerprint(doc), Line: line, Document: res.Document, Report: res.Report}
		if err := enc.Encode(rec); err != nil {
			return stats, fmt.Errorf("write line %d: %w", line, err)
		}
		stats.Processed++
		if res.Report.Usable {
			stats.Usable++
		}
	}
	if err := sc.Err(); err != nil {
		return stats, fmt.Errorf("read input: %w", err)
	}
	return stats, nil
}
