// Package kernel implements the scheduler and its synchronization substrate:
// the priority-ordered ready/blocked lists, the thread control block, the
// scheduler's block/unblock protocol, priority inheritance, software timers,
// message queues, and signal delivery (spec components C3–C11).
//
// These are kept in one package deliberately. Blocking a thread, running a
// timer, and delivering a signal all mutate the same list structures under
// the same critical section — splitting them across packages would either
// force broad exported surface onto fields that must stay internal (list
// links, owned-mutex chains) or force every mutation through indirect
// interfaces, which is exactly the anti-pattern spec.md §9 warns about
// ("arena + stable index... avoid reference-counted graphs"). Go's own
// runtime draws the same boundary for the same reason: the scheduler,
// semaphore implementation, and signal queueing all live in package
// runtime (see the retrieval pack's PazerOP-gosmopolitan and
// avikivity-gcc excerpts).
package kernel
