// Command aerodbsh is an interactive REPL for a single AeroDB data
// directory. Unlike the teacher's docdbsh (a unix-socket client shelling
// out to a separate docdb process), aerodbsh runs recovery and the
// request handler in the same process via pkg/client — there is no
// AeroDB server to dial. Line editing and history are provided by
// github.com/peterh/liner, a dependency the teacher already carries for
// docdbsh but never actually imports.
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/peterh/liner"

	"github.com/aerodb/aerodb/internal/config"
	"github.com/aerodb/aerodb/internal/logger"
	"github.com/aerodb/aerodb/pkg/client"
)

const prompt = "aerodb> "

func main() {
	dataDir := "./data"
	if len(os.Args) > 1 {
		dataDir = os.Args[1]
	}

	cfg := config.Default()
	cfg.DataDir = dataDir

	log := logger.Default()
	log.SetOutput(io.Discard)

	db, err := client.OpenWithLogger(cfg, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open %s: %v\n", dataDir, err)
		os.Exit(1)
	}
	defer db.Close()

	fmt.Printf("AeroDB shell — data dir: %s\n", dataDir)
	fmt.Println("Type .help for commands, .exit to quit.")

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	histPath := filepath.Join(dataDir, ".aerodbsh_history")
	if f, err := os.Open(histPath); err == nil {
		line.ReadHistory(f)
		f.Close()
	}

	sh := newShell(db)

	for {
		text, err := line.Prompt(prompt)
		if err != nil {
			if err == liner.ErrPromptAborted || err == io.EOF {
				break
			}
			fmt.Fprintf(os.Stderr, "input error: %v\n", err)
			break
		}
		if text == "" {
			continue
		}
		line.AppendHistory(text)

		if sh.execute(text) {
			break
		}
	}

	if f, err := os.Create(histPath); err == nil {
		line.WriteHistory(f)
		f.Close()
	}
	fmt.Println()
}
