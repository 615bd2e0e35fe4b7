package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/invoice-parser/app/models"
)

// Fingerprint hashes the content and confidence of every field. Metadata
// is left out so a document re-sent after processing by another client
// keeps its key. encoding/json sorts map keys, so equal documents always
// produce the same bytes.
func Fingerprint(doc models.Document) string {
	type entry struct {
		Content    string  `json:"c"`
		Confidence float64 `json:"p"`
	}
	canonical := make(map[string]map[string]entry, len(doc))
	for name, section := range doc {
		fields := make(map[string]entry, len(section))
		for k, f := range section {
			fields[k] = entry{Content: f.Content, Confidence: f.Confidence}
		}
		canonical[name] = fields
	}
	// maps of plain structs always marshal
	b, _ := json.Marshal(canonical)
	sum := sha256.Sum256(b)
	return "sha256:" + hex.EncodeToString(sum[:])
}
