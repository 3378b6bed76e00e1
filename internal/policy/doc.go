// Package policy implements the card control evaluation engine.
//
// A Registry is built once at process start from a control definition file.
// Each definition names a value type (String or Integer), the transaction
// field it compares against and the operator used for the comparison. At load
// time every definition is compiled into a Processor, so evaluation never
// dispatches on configuration strings.
//
// Evaluation of a transaction runs in two phases:
//   - the mandatory check walks the MandatorySpec in order and rejects on the
//     first entry the card has not configured
//   - every configured control is evaluated in name order; a control with
//     several values passes when any one of them passes
//
// Rejections are returned as values on Decision. Errors are reserved for
// configuration problems such as a stored control name the registry does not
// know.
package policy
