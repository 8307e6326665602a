package actor

// Step applies a reducer to a single (state, input) pair.
//
// Reducer tests use it to walk a state machine without executing effects.
func Step[S any](state S, input Input, reducer ReducerFunc[S]) (S, []Effect) {
	return reducer(state, input)
}

// Steps folds a sequence of inputs through the reducer and returns the final
// state together with every effect produced along the way, in order.
func Steps[S any](state S, reducer ReducerFunc[S], inputs ...Input) (S, []Effect) {
	var all []Effect
	for _, in := range inputs {
		var effs []Effect
		state, effs = reducer(state, in)
		all = append(all, effs...)
	}
	return state, all
}
