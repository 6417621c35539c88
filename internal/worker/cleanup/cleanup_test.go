package cleanup

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

// fakeResult はsql.Resultのモック。
type fakeResult struct {
	rowsAffected int64
}

func (r *fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (r *fakeResult) RowsAffected() (int64, error) { return r.rowsAffected, nil }

// mockExecutor はExecutorインターフェースのモック実装。
// 実行されたクエリと引数をすべて記録する。
type mockExecutor struct {
	queries []string
	args    [][]interface{}
	results []sql.Result
	errs    []error
	calls   int
}

func (m *mockExecutor) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	i := m.calls
	m.calls++
	m.queries = append(m.queries, query)
	m.args = append(m.args, args)

	var result sql.Result
	if i < len(m.results) {
		result = m.results[i]
	}
	var err error
	if i < len(m.errs) {
		err = m.errs[i]
	}
	return result, err
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

func newSuccessExecutor(sessionsDeleted, paymentsDeleted int64) *mockExecutor {
	return &mockExecutor{
		results: []sql.Result{
			&fakeResult{rowsAffected: sessionsDeleted},
			&fakeResult{rowsAffected: paymentsDeleted},
		},
	}
}

func TestNewCleanupJob_ReturnsNonNil(t *testing.T) {
	var buf bytes.Buffer
	job := NewCleanupJob(newSuccessExecutor(0, 0), newTestLogger(&buf))

	if job == nil {
		t.Fatal("NewCleanupJob は nil を返してはならない")
	}
}

func TestNewCleanupJob_SetsRetentionDays(t *testing.T) {
	var buf bytes.Buffer
	job := NewCleanupJob(newSuccessExecutor(0, 0), newTestLogger(&buf))

	if job.RetentionDays != 14 {
		t.Errorf("RetentionDays = %d, want 14", job.RetentionDays)
	}
}

func TestCleanupJob_Run_ExecutesBothDeleteQueries(t *testing.T) {
	var buf bytes.Buffer
	mock := newSuccessExecutor(5, 3)
	job := NewCleanupJob(mock, newTestLogger(&buf))

	err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() がエラーを返した: %v", err)
	}

	if mock.calls != 2 {
		t.Fatalf("ExecContext の呼び出し回数 = %d, want 2", mock.calls)
	}

	// 1本目: 期限切れセッションの削除
	if !strings.Contains(mock.queries[0], "DELETE FROM sessions") {
		t.Errorf("1本目のクエリに 'DELETE FROM sessions' が含まれていない: %s", mock.queries[0])
	}
	if !strings.Contains(mock.queries[0], "expires_at") {
		t.Errorf("1本目のクエリに 'expires_at' 条件が含まれていない: %s", mock.queries[0])
	}

	// 2本目: 放置された未完了入金セッションの削除
	if !strings.Contains(mock.queries[1], "DELETE FROM payment_sessions") {
		t.Errorf("2本目のクエリに 'DELETE FROM payment_sessions' が含まれていない: %s", mock.queries[1])
	}
	if !strings.Contains(mock.queries[1], "status = 'initiated'") {
		t.Errorf("2本目のクエリにstatus条件が含まれていない: %s", mock.queries[1])
	}
	if !strings.Contains(mock.queries[1], "created_at") {
		t.Errorf("2本目のクエリに 'created_at' 条件が含まれていない: %s", mock.queries[1])
	}
}

func TestCleanupJob_Run_UsesIntervalParameter(t *testing.T) {
	var buf bytes.Buffer
	mock := newSuccessExecutor(0, 0)
	job := NewCleanupJob(mock, newTestLogger(&buf))

	_ = job.Run(context.Background())

	if len(mock.args) < 2 || len(mock.args[1]) < 1 {
		t.Fatal("入金セッション削除クエリに引数が渡されなかった")
	}

	argStr, ok := mock.args[1][0].(string)
	if !ok {
		t.Fatalf("第1引数が string ではない: %T", mock.args[1][0])
	}
	if argStr != "14 days" {
		t.Errorf("interval引数 = %q, want %q", argStr, "14 days")
	}
}

func TestCleanupJob_CustomRetentionDays(t *testing.T) {
	var buf bytes.Buffer
	mock := newSuccessExecutor(0, 0)
	job := NewCleanupJob(mock, newTestLogger(&buf))
	job.RetentionDays = 90

	_ = job.Run(context.Background())

	argStr, ok := mock.args[1][0].(string)
	if !ok {
		t.Fatalf("第1引数が string ではない: %T", mock.args[1][0])
	}
	if argStr != "90 days" {
		t.Errorf("interval引数 = %q, want %q", argStr, "90 days")
	}
}

func TestCleanupJob_Run_LogsDeletedCounts(t *testing.T) {
	var buf bytes.Buffer
	mock := newSuccessExecutor(42, 7)
	job := NewCleanupJob(mock, newTestLogger(&buf))

	_ = job.Run(context.Background())

	entry := findLogEntryWithKey(t, &buf, "sessions_deleted")
	if entry == nil {
		t.Fatalf("ログに sessions_deleted が記録されていない。ログ出力: %s", buf.String())
	}
	if entry["sessions_deleted"] != float64(42) {
		t.Errorf("sessions_deleted = %v, want 42", entry["sessions_deleted"])
	}
	if entry["stale_payments_deleted"] != float64(7) {
		t.Errorf("stale_payments_deleted = %v, want 7", entry["stale_payments_deleted"])
	}
	if entry["retention_days"] != float64(14) {
		t.Errorf("retention_days = %v, want 14", entry["retention_days"])
	}
	if _, ok := entry["duration_ms"]; !ok {
		t.Error("ログに duration_ms が記録されていない")
	}
}

func TestCleanupJob_Run_ReturnsErrorOnSessionDeleteFailure(t *testing.T) {
	var buf bytes.Buffer
	mock := &mockExecutor{
		errs: []error{sql.ErrConnDone},
	}
	job := NewCleanupJob(mock, newTestLogger(&buf))

	err := job.Run(context.Background())
	if err == nil {
		t.Fatal("DBエラー時に Run() は nil でないエラーを返すべき")
	}
	if !strings.Contains(err.Error(), "sql: connection is already closed") {
		t.Errorf("エラーメッセージが期待と異なる: %v", err)
	}

	// 1本目で失敗したら2本目は実行しない
	if mock.calls != 1 {
		t.Errorf("ExecContext の呼び出し回数 = %d, want 1", mock.calls)
	}
	if !strings.Contains(buf.String(), "ERROR") {
		t.Errorf("エラー時にERRORレベルのログが記録されていない。ログ出力: %s", buf.String())
	}
}

func TestCleanupJob_Run_ReturnsErrorOnPaymentDeleteFailure(t *testing.T) {
	var buf bytes.Buffer
	mock := &mockExecutor{
		results: []sql.Result{&fakeResult{rowsAffected: 1}, nil},
		errs:    []error{nil, sql.ErrConnDone},
	}
	job := NewCleanupJob(mock, newTestLogger(&buf))

	err := job.Run(context.Background())
	if err == nil {
		t.Fatal("2本目のDBエラー時に Run() は nil でないエラーを返すべき")
	}
	if mock.calls != 2 {
		t.Errorf("ExecContext の呼び出し回数 = %d, want 2", mock.calls)
	}
}

func TestCleanupJob_Run_Idempotent_ZeroRows(t *testing.T) {
	var buf bytes.Buffer
	mock := &mockExecutor{
		results: []sql.Result{
			&fakeResult{rowsAffected: 0},
			&fakeResult{rowsAffected: 0},
			&fakeResult{rowsAffected: 0},
			&fakeResult{rowsAffected: 0},
		},
	}
	job := NewCleanupJob(mock, newTestLogger(&buf))

	// 削除対象がなくてもエラーにならない
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("1回目の Run() がエラーを返した: %v", err)
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("2回目の Run() がエラーを返した: %v", err)
	}
}

// findLogEntryWithKey はJSONログの各行から指定キーを含むエントリを探す。
func findLogEntryWithKey(t *testing.T, buf *bytes.Buffer, key string) map[string]interface{} {
	t.Helper()
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var entry map[string]interface{}
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			continue
		}
		if _, ok := entry[key]; ok {
			return entry
		}
	}
	return nil
}
