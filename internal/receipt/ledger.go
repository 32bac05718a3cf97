package receipt

// noEdit marks the edit cursor as inactive.
const noEdit = -1

// Ledger holds the receipt currently under review together with a
// transient edit cursor. It is not safe for concurrent use on its own;
// the Session serializes access to it.
//
// Out-of-range indexes passed to BeginEdit and Remove are deliberately
// ignored rather than rejected: the edit surface is driven by a touch UI
// where a double tap can race a removal, and a stale index must not blow
// up the review.
type Ledger struct {
	receipt   *Receipt
	editIndex int
}

// NewLedger returns an empty ledger with no active receipt.
func NewLedger() *Ledger {
	return &Ledger{editIndex: noEdit}
}

// Load replaces the active receipt wholesale and clears any pending edit.
func (l *Ledger) Load(r *Receipt) {
	l.receipt = r
	l.editIndex = noEdit
}

// Receipt returns the active receipt, or nil when nothing is under review.
func (l *Ledger) Receipt() *Receipt {
	return l.receipt
}

// BeginEdit points the edit cursor at item index. Out of range: no-op.
func (l *Ledger) BeginEdit(index int) {
	if l.receipt == nil || index < 0 || index >= len(l.receipt.Items) {
		return
	}
	l.editIndex = index
}

// CommitEdit overwrites the name and total price of the item under edit
// and clears the cursor. Quantity, unit and unit price are preserved.
// Without an active cursor this is a no-op.
func (l *Ledger) CommitEdit(name, totalPrice string) {
	if l.receipt == nil || l.editIndex == noEdit {
		return
	}
	item := &l.receipt.Items[l.editIndex]
	item.Name = &name
	item.TotalPrice = &totalPrice
	l.editIndex = noEdit
}

// Remove deletes the item at index, keeping the relative order of the
// remainder. Out of range: no-op.
func (l *Ledger) Remove(index int) {
	if l.receipt == nil || index < 0 || index >= len(l.receipt.Items) {
		return
	}
	l.receipt.Items = append(l.receipt.Items[:index], l.receipt.Items[index+1:]...)
	l.editIndex = noEdit
}

// Total sums every item's total price in øre. Absent or unparsable prices
// contribute zero; Total never fails.
func (l *Ledger) Total() int64 {
	if l.receipt == nil {
		return 0
	}
	var sum int64
	for _, item := range l.receipt.Items {
		if item.TotalPrice != nil {
			sum += ParseAmount(*item.TotalPrice)
		}
	}
	return sum
}

// Clear discards the active receipt and the edit cursor.
func (l *Ledger) Clear() {
	l.receipt = nil
	l.editIndex = noEdit
}
