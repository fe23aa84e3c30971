// Package list implements a generic doubly-linked list used by the
// buffer pool's free list and the LRU replacer.
package list

// List is a doubly-linked list of values of type T.
type List[T any] struct {
	head *Link[T]
	tail *Link[T]
	size int64
}

// NewList creates a new, empty list.
func NewList[T any]() *List[T] {
	return &List[T]{}
}

// PeekHead returns a pointer to the head of the list, or nil if the list is empty.
func (list *List[T]) PeekHead() *Link[T] {
	return list.head
}

// PeekTail returns a pointer to the tail of the list, or nil if the list is empty.
func (list *List[T]) PeekTail() *Link[T] {
	return list.tail
}

// Size returns the number of links in the list.
func (list *List[T]) Size() int64 {
	return list.size
}

// PushHead adds an element to the start of the list. Returns the added link.
func (list *List[T]) PushHead(value T) *Link[T] {
	newlink := &Link[T]{list: list, next: list.head, value: value}
	if list.head != nil {
		list.head.prev = newlink
	}
	list.head = newlink
	if list.tail == nil {
		list.tail = newlink
	}
	list.size++
	return newlink
}

// PushTail adds an element to the end of the list. Returns the added link.
func (list *List[T]) PushTail(value T) *Link[T] {
	newlink := &Link[T]{list: list, prev: list.tail, value: value}
	if list.tail != nil {
		list.tail.next = newlink
	}
	list.tail = newlink
	if list.head == nil {
		list.head = newlink
	}
	list.size++
	return newlink
}

// Find returns the first link for which f evaluates to true, or nil if none does.
func (list *List[T]) Find(f func(*Link[T]) bool) *Link[T] {
	for cur := list.head; cur != nil; cur = cur.next {
		if f(cur) {
			return cur
		}
	}
	return nil
}

// Map applies a function to every link in the list.
func (list *List[T]) Map(f func(*Link[T])) {
	for cur := list.head; cur != nil; {
		next := cur.next
		f(cur)
		cur = next
	}
}

// Link is a node in a List.
type Link[T any] struct {
	list  *List[T]
	prev  *Link[T]
	next  *Link[T]
	value T
}

// GetList returns the list that this link is a part of, or nil if it was popped.
func (link *Link[T]) GetList() *List[T] {
	return link.list
}

// GetValue returns the link's value.
func (link *Link[T]) GetValue() T {
	return link.value
}

// SetValue sets the link's value.
func (link *Link[T]) SetValue(value T) {
	link.value = value
}

// GetPrev returns the link preceding this one, or nil at the head.
func (link *Link[T]) GetPrev() *Link[T] {
	return link.prev
}

// GetNext returns the link following this one, or nil at the tail.
func (link *Link[T]) GetNext() *Link[T] {
	return link.next
}

// PopSelf removes this link from its list.
func (link *Link[T]) PopSelf() {
	if link.prev != nil {
		link.prev.next = link.next
	} else {
		link.list.head = link.next
	}
	if link.next != nil {
		link.next.prev = link.prev
	} else {
		link.list.tail = link.prev
	}
	link.list.size--
	link.list = nil
	link.prev = nil
	link.next = nil
}
