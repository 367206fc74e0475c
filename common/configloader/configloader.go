// common/configloader/configloader.go
package configloader

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Validator реализуют конфиги сервисов.
type Validator interface {
	Validate() error
}

// Load собирает конфиг в cfgPtr. Приоритет: ENV > YAML-файл > defaults.
// envPrefix: префикс ENV переменных, например "STREAMER":
// ключ kafka.brokers читается из STREAMER_KAFKA_BROKERS.
func Load(path, envPrefix string, cfgPtr interface{}) error {
	v, err := newViper(envPrefix, cfgPtr)
	if err != nil {
		return err
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("configloader: read config %q: %w", path, err)
		}
	}

	if err := decode(v.AllSettings(), cfgPtr); err != nil {
		return fmt.Errorf("configloader: decode failed: %w", err)
	}

	if val, ok := cfgPtr.(Validator); ok {
		if err := val.Validate(); err != nil {
			return fmt.Errorf("configloader: validation failed: %w", err)
		}
	}
	return nil
}

func newViper(envPrefix string, cfgPtr interface{}) (*viper.Viper, error) {
	v := viper.New()
	for key, val := range getDefaults() {
		v.SetDefault(key, val)
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AllSettings видит ENV только для известных ключей: берём их из тегов.
	for _, key := range structKeys(cfgPtr) {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("configloader: bind env %q: %w", key, err)
		}
	}
	return v, nil
}

// LoadDotEnv подгружает переменные окружения из .env файлов.
// Отсутствующий файл не считается ошибкой; уже заданные переменные
// окружения не перезаписываются.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if f == "" {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("configloader: dotenv %q: %w", f, err)
		}
	}
	return nil
}
