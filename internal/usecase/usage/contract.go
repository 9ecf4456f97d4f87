package usage

import "github.com/kailas-cloud/lexrag/internal/usecase/embedding"

// BudgetReader exposes the token budget counters.
type BudgetReader interface {
	Daily() embedding.Usage
	Monthly() embedding.Usage
}
