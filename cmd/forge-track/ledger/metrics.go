package ledger

import (
	"errors"
	"time"

	"github.com/forge-track/forge-track/pkg/datamodel"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const transactionTimeout = 1 * time.Minute

var (
	ledgerOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "forgetrack_ledger_operations_total",
		Help: "Piece ledger operations by protocol entry point",
	}, []string{"operation"})

	ledgerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "forgetrack_ledger_failures_total",
		Help: "Rejected piece ledger operations by error kind",
	}, []string{"operation", "kind"})
)

func observeOperation(operation string) {
	ledgerOperations.WithLabelValues(operation).Inc()
}

func observeFailure(operation string, err error) {
	ledgerFailures.WithLabelValues(operation, errorKind(err)).Inc()
}

// errorKind maps an error onto its taxonomy label for metrics
func errorKind(err error) string {
	switch {
	case errors.Is(err, datamodel.ErrInsufficientPieces):
		return "insufficient_pieces"
	case errors.Is(err, datamodel.ErrPieceCountMismatch):
		return "piece_count_mismatch"
	case errors.Is(err, datamodel.ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, datamodel.ErrAlreadyTerminal):
		return "already_terminal"
	case errors.Is(err, datamodel.ErrStructuralInvalid):
		return "structural_invalid"
	case errors.Is(err, datamodel.ErrNotFound):
		return "not_found"
	default:
		return "internal"
	}
}
