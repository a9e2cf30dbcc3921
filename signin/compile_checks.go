package signin

var (
	_ AttemptStore = (*MemoryAttemptStore)(nil)
	_ AttemptStore = (*RedisAttemptStore)(nil)
)
