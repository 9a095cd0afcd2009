package shell

import (
	"context"
	"encoding/json"
	"os/exec"

	"github.com/cockroachdb/errors"

	"delayflow/internal/domain"
)

type Shell struct{}

// Cmd is read from the task data.
type Cmd struct {
	Command string   `json:"command"`
	Args    []string `json:"args"`
}

func (h Shell) Handle(ctx context.Context, t domain.Task) error {
	var c Cmd
	if err := decode(t.Data, &c); err != nil {
		return err
	}
	if c.Command == "" {
		return errors.New("command is required")
	}
	cmd := exec.CommandContext(ctx, c.Command, c.Args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return errors.Wrapf(err, "shell error; out=%s", string(out))
	}
	return nil
}

func decode(data map[string]any, v any) error {
	b, err := json.Marshal(data)
	if err != nil {
		return errors.Wrap(err, "encode task data")
	}
	if err := json.Unmarshal(b, v); err != nil {
		return errors.Wrap(err, "invalid shell task data")
	}
	return nil
}
