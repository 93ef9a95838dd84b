// Package logger はzerologによる構造化ログの初期化を担う
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var globalLogger zerolog.Logger

// Config はログ出力の設定
type Config struct {
	Level      string `yaml:"level"`       // trace/debug/info/warn/error
	Debug      bool   `yaml:"debug"`       // trueならLevelより優先してdebug
	Output     string `yaml:"output"`      // stdout または stderr
	Console    bool   `yaml:"console"`     // 人間向けのコンソール出力
	TimeFormat string `yaml:"time_format"` // タイムスタンプ形式
}

func init() {
	globalLogger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	zerolog.TimeFieldFormat = time.RFC3339
}

// Init は設定に従ってグローバルロガーを構築する
func Init(config Config) error {
	var output io.Writer = os.Stdout
	if config.Output == "stderr" {
		output = os.Stderr
	}

	if config.Console {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: time.TimeOnly}
	}

	level := zerolog.InfoLevel

	if config.Debug {
		level = zerolog.DebugLevel
	} else if config.Level != "" {
		var err error

		level, err = zerolog.ParseLevel(config.Level)
		if err != nil {
			return err
		}
	}

	if config.TimeFormat != "" {
		zerolog.TimeFieldFormat = config.TimeFormat
	}

	globalLogger = zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Logger()

	log.Logger = globalLogger

	return nil
}

// SetDebug はログレベルをdebug/infoに切り替える
func SetDebug(debug bool) {
	if debug {
		globalLogger = globalLogger.Level(zerolog.DebugLevel)
	} else {
		globalLogger = globalLogger.Level(zerolog.InfoLevel)
	}
	log.Logger = globalLogger
}

// GetLogger はグローバルロガーを返す
func GetLogger() zerolog.Logger {
	return globalLogger
}

// WithComponent はcomponentフィールド付きのロガーを返す
func WithComponent(component string) zerolog.Logger {
	return globalLogger.With().Str("component", component).Logger()
}

// Nop はテスト用に何も出力しないロガーを返す
func Nop() zerolog.Logger {
	return zerolog.Nop()
}
