package hub

// Subscribe registers an observer. Notifications are delivered in the order
// they were produced; when the observer's buffer is full the notification is
// dropped for that observer and counted. The returned function unsubscribes
// and closes the channel.
func (h *Hub) Subscribe(buffer int) (<-chan Notification, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Notification, buffer)

	h.subsMu.Lock()
	select {
	case <-h.done:
		h.subsMu.Unlock()
		close(ch)
		return ch, func() {}
	default:
	}
	id := h.nextSub
	h.nextSub++
	h.subs[id] = ch
	h.subsMu.Unlock()

	return ch, func() {
		h.subsMu.Lock()
		defer h.subsMu.Unlock()
		if c, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(c)
		}
	}
}

// DroppedNotifications returns how many notifications were not delivered
// because a queue or subscriber buffer was full.
func (h *Hub) DroppedNotifications() int64 {
	return h.dropped.Load()
}

func (h *Hub) subscriberCount() int {
	h.subsMu.Lock()
	defer h.subsMu.Unlock()
	return len(h.subs)
}

// enqueue never blocks the producer.
func (h *Hub) enqueue(n Notification) {
	select {
	case h.queue <- n:
	default:
		h.dropped.Add(1)
		h.metrics.DropNotification()
		h.logger.Debug("notification queue full, dropping", "kind", n.Kind)
	}
}

func (h *Hub) run() {
	defer h.dispatcher.Done()
	for {
		select {
		case <-h.done:
			h.drain()
			h.closeSubscribers()
			return
		case n := <-h.queue:
			h.dispatch(n)
		}
	}
}

// drain delivers whatever is still queued.
func (h *Hub) drain() {
	for {
		select {
		case n := <-h.queue:
			h.dispatch(n)
		default:
			return
		}
	}
}

func (h *Hub) dispatch(n Notification) {
	h.subsMu.Lock()
	defer h.subsMu.Unlock()

	dropped := 0
	for _, sub := range h.subs {
		select {
		case sub <- n:
		default:
			dropped++
		}
	}
	if dropped > 0 {
		h.dropped.Add(int64(dropped))
		for i := 0; i < dropped; i++ {
			h.metrics.DropNotification()
		}
		h.logger.Debug("subscriber buffer full, dropped notification", "kind", n.Kind, "subscribers", dropped)
	}
}

func (h *Hub) closeSubscribers() {
	h.subsMu.Lock()
	defer h.subsMu.Unlock()
	for id, sub := range h.subs {
		close(sub)
		delete(h.subs, id)
	}
}
