package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-pos/jobs"
)

type stubClient struct {
	tasks []*asynq.Task
}

func (s *stubClient) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	s.tasks = append(s.tasks, task)
	return &asynq.TaskInfo{ID: "t1", Type: task.Type(), Queue: jobs.QueueDefault}, nil
}

type stubInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (s stubInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) { return s.info, s.err }

func (s stubInspector) ListScheduledTasks(string, ...asynq.ListOption) ([]*asynq.TaskInfo, error) {
	return nil, s.err
}

func TestRunTrigger(t *testing.T) {
	client := &stubClient{}
	c := &JobsCLI{client: client, inspector: stubInspector{}}

	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	code := c.Run(context.Background(), []string{"trigger", jobs.TaskPurchasesSuggest}, TriggerOptions{ActorID: 1}, stdout, stderr)
	require.Equal(t, 0, code, stderr.String())
	require.Contains(t, stdout.String(), "enqueued purchases:suggest id=t1")
	require.Len(t, client.tasks, 1)

	var payload jobs.Payload
	require.NoError(t, json.Unmarshal(client.tasks[0].Payload(), &payload))
	require.Equal(t, int64(1), payload.ActorID)
	require.NotEmpty(t, payload.RequestID)
}

func TestRunTriggerRejectsUnknownJob(t *testing.T) {
	c := &JobsCLI{client: &stubClient{}, inspector: stubInspector{}}
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	code := c.Run(context.Background(), []string{"trigger", "gl:integrity"}, TriggerOptions{}, stdout, stderr)
	require.Equal(t, 1, code)
	require.Contains(t, stderr.String(), "unsupported job gl:integrity")
}

func TestRunStats(t *testing.T) {
	c := &JobsCLI{client: &stubClient{}, inspector: stubInspector{info: &asynq.QueueInfo{Queue: jobs.QueueDefault, Pending: 5}}}
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	require.Equal(t, 0, c.Run(context.Background(), []string{"stats"}, TriggerOptions{}, stdout, stderr))
	require.Contains(t, stdout.String(), "default")
	require.Contains(t, stdout.String(), "5")

	c.inspector = stubInspector{err: errors.New("redis down")}
	require.Equal(t, 1, c.Run(context.Background(), []string{"stats"}, TriggerOptions{}, stdout, stderr))
}

func TestRunUsage(t *testing.T) {
	c := &JobsCLI{}
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	require.Equal(t, 2, c.Run(context.Background(), nil, TriggerOptions{}, stdout, stderr))
	require.Equal(t, 2, c.Run(context.Background(), []string{"purge"}, TriggerOptions{}, stdout, stderr))
}
