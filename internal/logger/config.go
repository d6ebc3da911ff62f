// internal/logger/config.go
package logger

// Config описывает вывод логов: консоль плюс JSON-файл с ротацией.
type Config struct {
	// LogFile is the rotated JSON log; empty disables file output.
	LogFile    string
	MaxSize    int  // мегабайты
	MaxAge     int  // дни
	MaxBackups int  // количество файлов
	Compress   bool // сжимать ротированные файлы
	Debug      bool
	// Pretty switches the console to the colored short format.
	Pretty bool
}

// DefaultConfig возвращает конфигурацию по умолчанию
func DefaultConfig() *Config {
	return &Config{
		LogFile:    "candymint.log",
		MaxSize:    50,
		MaxAge:     7,
		MaxBackups: 3,
		Compress:   true,
		Pretty:     true,
	}
}
