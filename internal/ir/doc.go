// Package ir provides the hash-consed signal representation shared by the
// compiler passes.
//
// Signals are interned in a Pool: structurally equal nodes built in the same
// pool get the same NodeID, so equality is an integer comparison. A Signal is
// only meaningful with the pool that built it, and pools are not safe for
// concurrent use.
//
// ir imports nothing internal. All other internal packages import ir.
//
// Key constraints:
//   - Argument order is preserved; no constructor reorders operands
//   - Recursion groups are opened and closed explicitly; CloseGroup returns
//     the group's tie
//   - Every failure is an *Error with a stable ErrorCode
package ir
