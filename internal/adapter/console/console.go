package console

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"

	"github.com/Nyukimin/toolrouter/internal/application/dispatch"
	"github.com/Nyukimin/toolrouter/internal/application/orchestrator"
	"github.com/Nyukimin/toolrouter/internal/domain/tool"
	"github.com/Nyukimin/toolrouter/pkg/logger"
)

const helpText = "You can ask for weather information or stock prices. For example:\n" +
	"- 'What's the weather in New York?'\n" +
	"- 'Get stock price for AAPL'"

// Session はコンソールが操作する会話
type Session interface {
	ProcessQuery(ctx context.Context, req orchestrator.QueryRequest) (dispatch.Response, error)
	SetNarration(on bool)
	Narration() bool
	Catalog() []tool.Descriptor
}

// LineReader はユーザー入力行を返す
type LineReader interface {
	Readline() (string, error)
	Close() error
}

// NewReadline は対話プロンプトを開く（historyFile は空可）
func NewReadline(historyFile string) (*readline.Instance, error) {
	return readline.NewEx(&readline.Config{
		Prompt:          "You: ",
		HistoryFile:     historyFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
}

// Console は対話型チャットボット
type Console struct {
	session Session
	out     io.Writer
}

// New は out に出力するConsoleを作成
func New(session Session, out io.Writer) *Console {
	return &Console{session: session, out: out}
}

// Run は終了コマンドかEOF、ctx 終了まで入力を処理
func (c *Console) Run(ctx context.Context, in LineReader) error {
	defer in.Close()

	fmt.Fprintln(c.out, "Welcome to the toolrouter chatbot!")
	fmt.Fprintln(c.out, "You can ask for weather information or stock prices.")
	fmt.Fprintln(c.out, "Type 'help' to see available commands or 'exit' to quit.")
	fmt.Fprintln(c.out, "Type 'toggle enhanced' to toggle enhanced responses.")
	c.printTools()

	for {
		if ctx.Err() != nil {
			return nil
		}
		line, err := in.Readline()
		switch {
		case errors.Is(err, readline.ErrInterrupt):
			if line == "" {
				return nil
			}
			continue
		case errors.Is(err, io.EOF):
			return nil
		case err != nil:
			return fmt.Errorf("read input: %w", err)
		}

		reply, exit := c.Handle(ctx, line)
		if exit {
			fmt.Fprintln(c.out, "Goodbye!")
			return nil
		}
		fmt.Fprintf(c.out, "\nChatbot: %s\n\n", reply)
	}
}

// Handle は入力1行に応答（終了コマンドなら exit=true）
func (c *Console) Handle(ctx context.Context, line string) (reply string, exit bool) {
	input := strings.TrimSpace(line)
	if input == "" {
		return "Please enter a question or command.", false
	}

	switch strings.ToLower(input) {
	case "exit", "quit", "bye":
		return "", true
	case "help", "tools", "commands":
		c.printTools()
		return helpText, false
	case "toggle enhanced", "toggle responses":
		on := !c.session.Narration()
		c.session.SetNarration(on)
		if on {
			return "Enhanced responses enabled", false
		}
		return "Enhanced responses disabled", false
	}

	resp, err := c.session.ProcessQuery(ctx, orchestrator.QueryRequest{Query: input})
	if err != nil {
		logger.WarnCF("console", "console.query_failed", map[string]interface{}{"error": err.Error()})
		return fmt.Sprintf("Error: %v", err), false
	}
	return render(resp), false
}

func render(resp dispatch.Response) string {
	if resp.Message != "" {
		return resp.Message
	}
	raw, err := json.Marshal(resp)
	if err != nil {
		return string(resp.Status)
	}
	return "Processed successfully: " + string(raw)
}

func (c *Console) printTools() {
	fmt.Fprintln(c.out, "\nAvailable tools:")
	for _, d := range c.session.Catalog() {
		fmt.Fprintf(c.out, "- %s: %s\n", d.Name, d.Description)
	}
	fmt.Fprintln(c.out)
}
