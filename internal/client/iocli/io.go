package iocli

// IO ввод-вывод команд CLI. Команды не пишут в os.Stdout напрямую,
// чтобы вывод можно было проверить в тестах.
type IO interface {
	Println(a ...any)
	Printf(format string, a ...any)
	Write(p []byte) (n int, err error)

	// ReadAll читает весь стандартный ввод (payload из пайпа)
	ReadAll() ([]byte, error)

	// IsTerminal reports whether output goes to an interactive terminal
	IsTerminal() bool
}
