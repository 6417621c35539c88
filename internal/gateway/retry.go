package gateway

import "time"

// CallResult はHTTPステータスコードに基づくゲートウェイ呼び出し結果の分類。
type CallResult int

const (
	// CallResultOK は呼び出し成功（2xx）。
	CallResultOK CallResult = iota
	// CallResultRetry はバックオフ付き再試行が必要なステータス（429/5xx）。
	CallResultRetry
	// CallResultReject は再試行しても結果が変わらないステータス（その他の4xx等）。
	CallResultReject
)

const (
	// initialBackoff は指数バックオフの初回遅延。
	initialBackoff = 200 * time.Millisecond
	// maxBackoff は指数バックオフの最大遅延。
	maxBackoff = 3 * time.Second
)

// ClassifyHTTPStatus はHTTPステータスコードを呼び出し結果に分類する。
func ClassifyHTTPStatus(statusCode int) CallResult {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return CallResultOK
	case statusCode == 429:
		return CallResultRetry
	case statusCode >= 500:
		return CallResultRetry
	default:
		return CallResultReject
	}
}

// CalculateBackoff は連続エラー回数に基づいて指数バックオフ遅延を計算する。
// 初回200ms、2倍ずつ増加、最大3秒。
func CalculateBackoff(consecutiveErrors int) time.Duration {
	delay := initialBackoff
	for i := 0; i < consecutiveErrors; i++ {
		delay *= 2
		if delay > maxBackoff {
			return maxBackoff
		}
	}
	return delay
}
