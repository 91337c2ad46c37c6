package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/malimina/jobs"
)

type stubClient struct {
	tasks []*asynq.Task
}

func (s *stubClient) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	s.tasks = append(s.tasks, task)
	return &asynq.TaskInfo{ID: "t1", Type: task.Type(), Queue: jobs.QueueDefault}, nil
}

func (s *stubClient) Close() error { return nil }

type stubInspector struct{}

func (stubInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	if queue == jobs.QueueCritical {
		return &asynq.QueueInfo{Queue: queue, Pending: 2, Archived: 1}, nil
	}
	return nil, asynq.ErrQueueNotFound
}

func (stubInspector) ListArchivedTasks(string, ...asynq.ListOption) ([]*asynq.TaskInfo, error) {
	return nil, nil
}

func (stubInspector) Close() error { return nil }

func TestTriggerCommand(t *testing.T) {
	client := &stubClient{}
	c := &JobsCLI{client: client, inspector: stubInspector{}}
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)

	code := c.Command(context.Background(), []string{"trigger", jobs.TaskCreditOverdueSweep}, stdout, stderr)
	require.Equal(t, 0, code, stderr.String())
	require.Contains(t, stdout.String(), "enqueued credit:overdue_sweep")
	require.Len(t, client.tasks, 1)

	code = c.Command(context.Background(), []string{"trigger", "mail:send"}, stdout, stderr)
	require.Equal(t, 1, code)
	require.Contains(t, stderr.String(), "unsupported job")

	require.Equal(t, 2, c.Command(context.Background(), []string{"trigger"}, stdout, stderr))
	require.Equal(t, 2, c.Command(context.Background(), nil, stdout, stderr))
}

func TestStatsCommandJSON(t *testing.T) {
	c := &JobsCLI{client: &stubClient{}, inspector: stubInspector{}}
	stdout := new(bytes.Buffer)

	code := c.Command(context.Background(), []string{"stats", "--json"}, stdout, new(bytes.Buffer))
	require.Equal(t, 0, code)

	var stats []QueueStats
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &stats))
	require.Equal(t, []QueueStats{
		{Queue: jobs.QueueCritical, Pending: 2, Archived: 1},
		{Queue: jobs.QueueDefault},
	}, stats)
}

func TestStatsCommandTable(t *testing.T) {
	c := &JobsCLI{client: &stubClient{}, inspector: stubInspector{}}
	stdout := new(bytes.Buffer)
	require.Equal(t, 0, c.Command(context.Background(), []string{"stats"}, stdout, new(bytes.Buffer)))
	require.Contains(t, stdout.String(), "QUEUE")
	require.Contains(t, stdout.String(), "critical")
}
