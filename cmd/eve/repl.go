package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	eve "github.com/dasBurdock/Eve"
)

const (
	promptMain  = "eve> "
	promptCont  = " ... "
	historyName = ".eve_history"
)

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Parse blocks interactively",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runREPL()
	},
}

// runREPL reads one block per interaction. A blank line submits the buffer;
// the buffer is parsed as a single code block and its IR (or a caret
// snippet) is printed.
func runREPL() error {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	histPath := historyPath()
	if f, err := os.Open(histPath); err == nil {
		line.ReadHistory(f)
		f.Close()
	}
	defer func() {
		if f, err := os.Create(histPath); err == nil {
			line.WriteHistory(f)
			f.Close()
		}
	}()

	fmt.Printf("Eve %s REPL\nFinish a block with a blank line; Ctrl+D exits.\n", eve.Version)
	eve.EnableColor = true

	var buf []string
	n := 0
	for {
		prompt := promptMain
		if len(buf) > 0 {
			prompt = promptCont
		}
		input, err := line.Prompt(prompt)
		if errors.Is(err, liner.ErrPromptAborted) {
			buf = nil
			continue
		}
		if errors.Is(err, io.EOF) {
			fmt.Println()
			return nil
		}
		if err != nil {
			return err
		}
		if strings.TrimSpace(input) == ":quit" {
			return nil
		}
		if strings.TrimSpace(input) != "" {
			buf = append(buf, input)
			continue
		}
		if len(buf) == 0 {
			continue
		}
		src := strings.Join(buf, "\n")
		line.AppendHistory(src)
		buf = nil

		res := eve.ParseBlock(src, fmt.Sprintf("repl|%d", n), 0, nil)
		n++
		if len(res.Errors) > 0 {
			for _, e := range res.Errors {
				fmt.Println(eve.WrapErrorWithSource(e, src))
			}
			continue
		}
		fmt.Print(eve.FormatBlock(res.Results))
	}
}

func historyPath() string {
	if cfg, err := loadConfig(configPath); err == nil && cfg.History != "" {
		return cfg.History
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return historyName
	}
	return filepath.Join(home, historyName)
}
