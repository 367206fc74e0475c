// common/configloader/defaults.go
package configloader

import (
	"strings"
	"sync"
)

// Реестр дефолтов общий для процесса: каждый сервис регистрирует свои
// ключи в config.Load перед вызовом Load.
var (
	defaultsMu sync.RWMutex
	defaults   = make(map[string]interface{})
)

// RegisterDefaults задаёт значение по умолчанию для ключа (регистр не важен).
func RegisterDefaults(k string, v interface{}) {
	defaultsMu.Lock()
	defer defaultsMu.Unlock()
	defaults[strings.ToLower(k)] = v
}

// ResetDefaults очищает реестр.
func ResetDefaults() {
	defaultsMu.Lock()
	defer defaultsMu.Unlock()
	defaults = make(map[string]interface{})
}

func getDefaults() map[string]interface{} {
	defaultsMu.RLock()
	defer defaultsMu.RUnlock()

	cp := make(map[string]interface{}, len(defaults))
	for k, v := range defaults {
		cp[k] = v
	}
	return cp
}
