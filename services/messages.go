package services

// User-facing messages returned in API responses and stored as rejection
// reasons.
const (
	MsgCardDetailsNotFound = "Details for this card could not be found"
	MsgCardCreationSuccess = "Card created successfully"
	MsgCardCreationFailed  = "Card creation failed"

	MsgControlCreationSuccess     = "Control created successfully"
	MsgControlDeletionSuccess     = "Control deleted successfully"
	MsgControlValidationFailed    = "Not a valid control value. Please refer to validation data"
	MsgControlMultipleCheckFailed = "Multiple values can not exist. Either update or delete"
	MsgControlInvalidName         = "Not a valid control name"

	MsgTxnApproved         = "Transaction has been successfully approved"
	MsgInsufficientBalance = "Insufficient balance to carry out this transaction"
	MsgTxnFetchFailure     = "Unable to fetch transaction"

	MsgAuthorizationFailure = "Sorry, you are not authorized to perform this operation"
	MsgConnectionError      = "Connection Error"
)
