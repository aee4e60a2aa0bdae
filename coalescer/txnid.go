package coalescer

import (
	"fmt"

	"github.com/sarchlab/lanecoalescer/sim"
)

const (
	txnElemName  = "Txn"
	passElemName = "Pass"
)

// txnReqID names a merged transaction, for example "Coalescer.Txn[3]".
func txnReqID(compName string, txnID int) string {
	return sim.BuildNameWithIndex(compName, txnElemName, txnID)
}

// passReqID names a forwarded lane request downstream, for example
// "Coalescer.Pass[12]". Lanes may reuse each other's IDs, so the lane ID
// itself never leaves the coalescer.
func passReqID(compName string, seq int) string {
	return sim.BuildNameWithIndex(compName, passElemName, seq)
}

// laneTaskID names the handling of a lane request, for example
// "7@Coalescer.Top[1]". The lane keeps equal IDs from different lanes apart.
func laneTaskID(compName string, l *lane, req sim.Msg) string {
	return req.Meta().ID + "@" +
		sim.BuildNameWithIndex(compName, "Top", l.index)
}

// parseTxnReqID recovers the transaction ID from a merged request ID.
func parseTxnReqID(compName, reqID string) (int, error) {
	name, err := sim.TryParseName(reqID)
	if err != nil {
		return 0, err
	}

	last := name.Last()
	if len(name.Tokens) < 2 ||
		name.Parent() != compName ||
		last.ElemName != txnElemName ||
		len(last.Index) != 1 {
		return 0, fmt.Errorf("%s is not a transaction of %s", reqID, compName)
	}

	return last.Index[0], nil
}
