package audio

// Drain consumes ch until it closes, discarding every value. Streaming
// sources keep producing until their channel is drained, so a consumer that
// ignores a channel (a partial-transcript feed with no preview surface, for
// example) must still drain it or the producer goroutine leaks.
func Drain[T any](ch <-chan T) {
	for range ch {
	}
}
