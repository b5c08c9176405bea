package reviews

import "strconv"

const (
	TopicReviewWritten = "review.written"
	EventReviewWritten = "ReviewWritten"
)

type Action string

const (
	ActionCreated Action = "created"
	ActionUpdated Action = "updated"
	ActionDeleted Action = "deleted"
)

type WrittenPayload struct {
	ReviewID  int64  `json:"review_id"`
	ProductID int64  `json:"product_id"`
	UserID    int64  `json:"user_id"`
	Stars     int    `json:"stars"`
	Action    Action `json:"action"`
}

func Written(rv Review, a Action) WrittenPayload {
	return WrittenPayload{ReviewID: rv.ID, ProductID: rv.ProductID, UserID: rv.UserID, Stars: rv.Stars, Action: a}
}

// PartitionKey keeps all events of one product on one partition.
func PartitionKey(productID int64) string { return strconv.FormatInt(productID, 10) }
