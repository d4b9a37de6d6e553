package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/betwatch/casekeeper/pkg/cli/config"
	"github.com/betwatch/casekeeper/pkg/domain/model"
	"github.com/betwatch/casekeeper/pkg/utils/safe"
)

// readPayloads accepts either a JSON array of objects or JSON Lines with one object per line
func readPayloads(r io.Reader) ([]model.Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read payloads")
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}

	if trimmed[0] == '[' {
		var docs []model.Document
		if err := json.Unmarshal(trimmed, &docs); err != nil {
			return nil, goerr.Wrap(model.ErrValidation, "invalid payload array", goerr.V("error", err.Error()))
		}
		return docs, nil
	}

	var docs []model.Document
	scanner := bufio.NewScanner(bytes.NewReader(trimmed))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		doc, err := model.ParseDocument(raw)
		if err != nil {
			return nil, goerr.Wrap(err, "invalid payload line", goerr.V("line", line))
		}
		docs = append(docs, doc)
	}
	if err := scanner.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to scan payloads")
	}
	return docs, nil
}

func cmdIngest() *cli.Command {
	var botID string
	var input string
	var executedAt string
	var recordsProcessed int64
	var wfCfg config.WorkflowConfig
	var repoCfg config.Repository

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "bot-id",
			Usage:       "Detection bot that produced the payloads",
			Required:    true,
			Destination: &botID,
		},
		&cli.StringFlag{
			Name:        "input",
			Aliases:     []string{"i"},
			Usage:       "JSON array or JSON Lines file of incident payloads; - for stdin",
			Value:       "-",
			Destination: &input,
		},
		&cli.StringFlag{
			Name:        "executed-at",
			Usage:       "Execution time (RFC3339); defaults to now",
			Destination: &executedAt,
		},
		&cli.Int64Flag{
			Name:        "records-processed",
			Usage:       "Number of records the bot scanned",
			Destination: &recordsProcessed,
		},
	}
	flags = append(flags, wfCfg.Flags()...)
	flags = append(flags, repoCfg.Flags()...)

	return &cli.Command{
		Name:  "ingest",
		Usage: "Record a bot execution and register its incidents",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			var r io.Reader = os.Stdin
			if input != "-" {
				// #nosec G304 - path is provided by CLI argument
				f, err := os.Open(input)
				if err != nil {
					return goerr.Wrap(err, "failed to open input", goerr.V("path", input))
				}
				defer safe.Close(ctx, f)
				r = f
			}

			payloads, err := readPayloads(r)
			if err != nil {
				return err
			}

			at := time.Now().UTC()
			if executedAt != "" {
				t, err := parseTimeFlag("executed-at", executedAt)
				if err != nil {
					return err
				}
				at = *t
			}

			uc, _, closeRepo, err := setupUseCases(ctx, &wfCfg, &repoCfg)
			if err != nil {
				return err
			}
			defer closeRepo()

			result, err := uc.Incident.IngestExecution(ctx, &model.BotExecution{
				BotID:            botID,
				ExecutedAt:       at,
				RecordsProcessed: recordsProcessed,
			}, payloads)

			w := c.Root().Writer
			if result != nil {
				_, _ = fmt.Fprintf(w, "execution %d: %d of %d incidents registered\n",
					result.Execution.ID, len(result.IncidentIDs), len(payloads))
			}
			return err
		},
	}
}
