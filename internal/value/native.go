package value

// ToNative converts v into plain Go values:
//
//	Null   -> nil
//	Bool   -> bool
//	Int    -> int64
//	Float  -> float64
//	String -> string
//	Array  -> []any
//	Object -> *Map
//
// The walk uses an explicit stack, so nesting depth is bounded only by memory.
func ToNative(v Value) any {
	type task struct {
		src *Value
		dst *any
	}

	var root any
	stack := []task{{src: &v, dst: &root}}
	for len(stack) > 0 {
		t := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		switch t.src.kind {
		case KindArray:
			out := make([]any, len(t.src.items))
			*t.dst = out
			for i := range t.src.items {
				stack = append(stack, task{src: &t.src.items[i], dst: &out[i]})
			}
		case KindObject:
			m := newMap(len(t.src.fields))
			*t.dst = m
			for i := range t.src.fields {
				m.keys[i] = t.src.fields[i].Key
				m.index[m.keys[i]] = i
				stack = append(stack, task{src: &t.src.fields[i].Value, dst: &m.values[i]})
			}
		default:
			*t.dst = scalar(t.src)
		}
	}
	return root
}

func scalar(v *Value) any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindString:
		return v.s
	default:
		return nil
	}
}
