package envcipher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jahvon/expression"
	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"
)

// resolveCommandKey runs the configured command and returns its output as
// the shared secret key. This is how installations that keep the key in an
// external secrets manager (1Password, pass, cloud CLIs) plug in.
func resolveCommandKey(cfg *CommandConfig) (string, error) {
	if cfg == nil || cfg.Template == "" {
		return "", fmt.Errorf("command template not configured")
	}

	cmd, err := renderCommandTemplate("key-cmd-template", cfg.Template, map[string]interface{}{
		"env":      expandEnv(cfg.Environment),
		"template": cfg.Template,
	})
	if err != nil {
		return "", fmt.Errorf("failed to render key command: %w", err)
	}

	ctx := context.Background()
	if cfg.Timeout != "" {
		dur, parseErr := time.ParseDuration(cfg.Timeout)
		if parseErr != nil {
			return "", fmt.Errorf("invalid timeout duration: %w", parseErr)
		}
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, dur)
		defer cancel()
	}

	output, err := execute(ctx, cmd, cfg.WorkingDir, environmentToSlice(cfg.Environment))
	if err != nil {
		return "", fmt.Errorf("key command failed: %w", err)
	}

	if cfg.OutputTemplate != "" {
		output, err = renderCommandTemplate("key-output-template", cfg.OutputTemplate, map[string]interface{}{
			"env":      expandEnv(cfg.Environment),
			"output":   output,
			"template": cfg.OutputTemplate,
		})
		if err != nil {
			return "", fmt.Errorf("failed to parse key command output: %w", err)
		}
	}

	return strings.TrimSpace(output), nil
}

// renderCommandTemplate evaluates an expression template without touching
// $VAR references; those are left for the shell interpreter, which sees
// the process environment merged with the configured one.
func renderCommandTemplate(name, template string, data map[string]interface{}) (string, error) {
	tmpl := expression.NewTemplate(name, data)
	if err := tmpl.Parse(template); err != nil {
		return "", fmt.Errorf("parsing template: %w", err)
	}

	result, err := tmpl.ExecuteToString()
	if err != nil {
		return "", fmt.Errorf("evaluating template: %w", err)
	}
	return result, nil
}

func environmentToSlice(env map[string]string) []string {
	var envSlice []string
	for key, value := range expandEnv(env) {
		envSlice = append(envSlice, fmt.Sprintf("%s=%s", key, value))
	}
	return envSlice
}

func execute(ctx context.Context, cmd, dir string, envList []string) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	parser := syntax.NewParser()
	reader := strings.NewReader(strings.TrimSpace(cmd))
	prog, err := parser.Parse(reader, "")
	if err != nil {
		return "", fmt.Errorf("unable to parse command - %w", err)
	}

	if envList == nil {
		envList = make([]string, 0)
	}
	envList = append(os.Environ(), envList...)

	stdOutBuffer := &strings.Builder{}
	stdErrBuffer := &strings.Builder{}

	runner, err := interp.New(
		interp.Dir(dir),
		interp.Env(expand.ListEnviron(envList...)),
		interp.StdIO(
			strings.NewReader(""),
			stdOutBuffer,
			stdErrBuffer,
		),
	)
	if err != nil {
		return "", fmt.Errorf("unable to create runner - %w", err)
	}

	err = runner.Run(ctx, prog)
	if err != nil {
		var exitStatus interp.ExitStatus
		if errors.As(err, &exitStatus) {
			return stdErrBuffer.String(), fmt.Errorf("command exited with non-zero status %w", exitStatus)
		}
		return stdErrBuffer.String(), fmt.Errorf("encountered an error executing command - %w", err)
	}

	return strings.TrimSpace(stdOutBuffer.String()), nil
}

// expandEnv returns a copy of env with process-environment references in
// the values expanded. The input map is never written to; it is shared
// configuration that may be read concurrently.
func expandEnv(env map[string]string) map[string]string {
	expanded := make(map[string]string, len(env))
	for k, v := range env {
		if strings.Contains(v, "$") || strings.Contains(v, "{") {
			v = os.ExpandEnv(v)
		}
		expanded[k] = v
	}
	return expanded
}
