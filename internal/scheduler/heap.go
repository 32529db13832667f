package scheduler

// completion is an in-flight task keyed by (time, task index).
type completion struct {
	time int
	task int
}

// completionHeap is a min-heap for container/heap.
type completionHeap []completion

func (h completionHeap) Len() int { return len(h) }

func (h completionHeap) Less(i, j int) bool {
	if h[i].time != h[j].time {
		return h[i].time < h[j].time
	}
	return h[i].task < h[j].task
}

func (h completionHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *completionHeap) Push(x any) { *h = append(*h, x.(completion)) }

func (h *completionHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

func (h completionHeap) find(task int) int {
	for i, c := range h {
		if c.task == task {
			return i
		}
	}
	return -1
}
