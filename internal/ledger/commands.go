package ledger

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// ReadCommands reads a newline-delimited command source. Blank lines are
// dropped; everything else is kept verbatim.
func ReadCommands(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open commands file: %w", err)
	}
	defer f.Close()

	var commands []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		commands = append(commands, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read commands file: %w", err)
	}
	return commands, nil
}
