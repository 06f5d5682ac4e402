package minecraft

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Operator is one entry of the server's ops.json.
type Operator struct {
	UUID                string `json:"uuid"`
	Name                string `json:"name"`
	Level               int    `json:"level"`
	BypassesPlayerLimit bool   `json:"bypassesPlayerLimit"`
}

// Operators reads ops.json from serverDir. A missing file means no operators.
func Operators(serverDir string) ([]Operator, error) {
	data, err := os.ReadFile(filepath.Join(serverDir, "ops.json"))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read ops.json: %w", err)
	}
	var ops []Operator
	if err := json.Unmarshal(data, &ops); err != nil {
		return nil, fmt.Errorf("parse ops.json: %w", err)
	}
	return ops, nil
}

func IsOperator(serverDir, name string) (bool, error) {
	ops, err := Operators(serverDir)
	if err != nil {
		return false, err
	}
	for _, op := range ops {
		if strings.EqualFold(op.Name, name) {
			return true, nil
		}
	}
	return false, nil
}
