package configloader

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// PrintConfig выводит конфиг в читаемом виде в stderr.
// stdout зарезервирован под поток сущностей.
func PrintConfig(v interface{}) {
	FprintConfig(os.Stderr, v)
}

// FprintConfig пишет конфиг в w.
func FprintConfig(w io.Writer, v interface{}) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Fprintln(w, "Loaded configuration:\n", string(b))
}
