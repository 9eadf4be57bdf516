// Package logging builds the slog.Logger used by the coven-inbox binaries.
//
// Text output is colorized with fatih/color when writing to a terminal.
// Set logging.file to keep logs out of the terminal UI:
//
//	logger, closeLog, err := logging.Setup(cfg.Logging)
//	if err != nil {
//		return err
//	}
//	defer closeLog()
package logging
