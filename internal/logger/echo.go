package logger

import (
	"fmt"
	"io"

	gommon "github.com/labstack/gommon/log"
)

// EchoAdapter routes echo's internal logging, such as panics caught by the
// Recover middleware, into a Logger. Output, prefix, level and header are
// owned by the central logger configuration, so the setters are no-ops.
//
//	e.Logger = logger.NewEchoAdapter(log.Module("echo"))
type EchoAdapter struct {
	log Logger
}

// NewEchoAdapter wraps log. A nil log falls back to the global logger.
func NewEchoAdapter(log Logger) *EchoAdapter {
	if log == nil {
		log = Global().Module("echo")
	}
	return &EchoAdapter{log: log}
}

func (a *EchoAdapter) Output() io.Writer { return io.Discard }
func (a *EchoAdapter) SetOutput(io.Writer) {}
func (a *EchoAdapter) Prefix() string { return "" }
func (a *EchoAdapter) SetPrefix(string) {}
func (a *EchoAdapter) Level() gommon.Lvl { return gommon.INFO }
func (a *EchoAdapter) SetLevel(gommon.Lvl) {}
func (a *EchoAdapter) SetHeader(string) {}
func (a *EchoAdapter) Print(i ...any) { a.log.Info(fmt.Sprint(i...)) }
func (a *EchoAdapter) Printf(f string, v ...any) { a.log.Info(fmt.Sprintf(f, v...)) }
func (a *EchoAdapter) Printj(j gommon.JSON) { a.log.Info("echo", Any("data", j)) }
func (a *EchoAdapter) Debug(i ...any) { a.log.Debug(fmt.Sprint(i...)) }
func (a *EchoAdapter) Debugf(f string, v ...any) { a.log.Debug(fmt.Sprintf(f, v...)) }
func (a *EchoAdapter) Debugj(j gommon.JSON) { a.log.Debug("echo", Any("data", j)) }
func (a *EchoAdapter) Info(i ...any) { a.log.Info(fmt.Sprint(i...)) }
func (a *EchoAdapter) Infof(f string, v ...any) { a.log.Info(fmt.Sprintf(f, v...)) }
func (a *EchoAdapter) Infoj(j gommon.JSON) { a.log.Info("echo", Any("data", j)) }
func (a *EchoAdapter) Warn(i ...any) { a.log.Warn(fmt.Sprint(i...)) }
func (a *EchoAdapter) Warnf(f string, v ...any) { a.log.Warn(fmt.Sprintf(f, v...)) }
func (a *EchoAdapter) Warnj(j gommon.JSON) { a.log.Warn("echo", Any("data", j)) }
func (a *EchoAdapter) Error(i ...any) { a.log.Error(fmt.Sprint(i...)) }
func (a *EchoAdapter) Errorf(f string, v ...any) { a.log.Error(fmt.Sprintf(f, v...)) }
func (a *EchoAdapter) Errorj(j gommon.JSON) { a.log.Error("echo", Any("data", j)) }

// Fatal and Panic log at error level and panic. Fatal does not exit so the
// server can still shut down cleanly.
func (a *EchoAdapter) Fatal(i ...any) { a.fail(fmt.Sprint(i...)) }
func (a *EchoAdapter) Fatalf(f string, v ...any) { a.fail(fmt.Sprintf(f, v...)) }
func (a *EchoAdapter) Fatalj(j gommon.JSON) { a.fail(fmt.Sprint(j)) }
func (a *EchoAdapter) Panic(i ...any) { a.fail(fmt.Sprint(i...)) }
func (a *EchoAdapter) Panicf(f string, v ...any) { a.fail(fmt.Sprintf(f, v...)) }
func (a *EchoAdapter) Panicj(j gommon.JSON) { a.fail(fmt.Sprint(j)) }

func (a *EchoAdapter) fail(msg string) {
	a.log.Error(msg)
	panic(msg)
}
