package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/taller-erp/taller-erp/internal/caja"
	"github.com/taller-erp/taller-erp/jobs"
)

type stubVerifier struct {
	drifts []caja.Drift
	err    error
}

func (s stubVerifier) VerifyPettyCash(context.Context, int64) ([]caja.Drift, error) {
	return s.drifts, s.err
}

func TestVerifyCommandJSONDrift(t *testing.T) {
	verifier := stubVerifier{drifts: []caja.Drift{
		{BranchID: 2, PettyCashID: 5, Stored: decimal.NewFromInt(30), Computed: decimal.RequireFromString("27.5")},
	}}
	stdout := new(bytes.Buffer)
	stderr := new(bytes.Buffer)
	code := VerifyCommand(context.Background(), verifier, VerifyOptions{BranchID: 2, JSONOutput: true, Stdout: stdout, Stderr: stderr})
	require.Equal(t, 10, code)
	require.Empty(t, stderr.String())

	var summary VerifySummary
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &summary))
	require.False(t, summary.OK)
	require.Len(t, summary.Drifts, 1)
	require.Equal(t, "2.50", summary.Drifts[0].Delta)
}

func TestVerifyCommandHumanClean(t *testing.T) {
	stdout := new(bytes.Buffer)
	code := VerifyCommand(context.Background(), stubVerifier{}, VerifyOptions{Stdout: stdout, Stderr: new(bytes.Buffer)})
	require.Zero(t, code)
	require.Contains(t, stdout.String(), "all branches")
}

func TestVerifyCommandError(t *testing.T) {
	stderr := new(bytes.Buffer)
	code := VerifyCommand(context.Background(), stubVerifier{err: errors.New("db down")}, VerifyOptions{Stdout: new(bytes.Buffer), Stderr: stderr})
	require.Equal(t, 1, code)
	require.Contains(t, stderr.String(), "db down")
}

func TestBuildTask(t *testing.T) {
	task, err := BuildTask(jobs.TaskPettyCashIntegrity, 3, time.Hour)
	require.NoError(t, err)
	var payload jobs.PettyCashIntegrityPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	require.EqualValues(t, 3, payload.BranchID)

	task, err = BuildTask(jobs.TaskIdempotencyCleanup, 0, time.Hour)
	require.NoError(t, err)
	require.Equal(t, jobs.TaskIdempotencyCleanup, task.Type())

	_, err = BuildTask("mail:send", 0, time.Hour)
	require.Error(t, err)
}
