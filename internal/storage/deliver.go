package storage

// Offer кладёт v в канал с буфером 1 по принципу "последний побеждает":
// если читатель не успел забрать предыдущий снимок, тот вытесняется.
// Конкурентные вызовы Offer для одного канала должны быть сериализованы вызывающим.
func Offer[T any](ch chan T, v T) {
	for {
		select {
		case ch <- v:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
