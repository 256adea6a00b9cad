package culture

import (
	"bytes"
	_ "embed"
)

//go:embed seed.yaml
var seedYAML []byte

// Seed returns the built-in dataset.
func Seed() ([]Point, error) {
	return DecodeYAML(bytes.NewReader(seedYAML))
}
