package consumer

type Disposition int

const (
	// Removed by the broker at delivery time, whatever the processing result
	AutoAcked Disposition = iota
	// Acknowledged after successful processing
	Acked
	// Rejected without requeue after a processing failure
	Dropped
	// The acknowledgment itself failed, the broker decides (usually redelivery)
	Unsettled
	// Processing was interrupted by shutdown, handed back to the broker for redelivery
	Requeued
)

const (
	AutoAckedStr string = "AUTO_ACKED"
	AckedStr     string = "ACKED"
	DroppedStr   string = "DROPPED"
	UnsettledStr string = "UNSETTLED"
	RequeuedStr  string = "REQUEUED"
	UnknownStr   string = "UNKNOWN"
)

var dispositionMap = map[Disposition]string{
	AutoAcked: AutoAckedStr,
	Acked:     AckedStr,
	Dropped:   DroppedStr,
	Unsettled: UnsettledStr,
	Requeued:  RequeuedStr,
}

func (d Disposition) String() string {
	if str, ok := dispositionMap[d]; ok {
		return str
	}
	return UnknownStr
}

// Outcome is the result of handling one delivery. It is logged and then discarded,
// failed orders are never retried.
type Outcome struct {
	Payload     string
	Redelivered bool
	Err         error
	Disposition Disposition
}

func (o Outcome) Succeeded() bool {
	return o.Err == nil
}
