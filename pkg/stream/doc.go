// Package stream carries raw ADC/DAC sample blocks from the DSP path to a
// host over UDP.
//
// A Generator is the producer handle: the DSP goroutine pushes blocks into a
// bounded lock-free queue and never blocks. The Stream drains that queue on
// the network goroutine, packs blocks into frames and sends them to the
// configured target through the shared network stack. Blocks that do not fit
// into the queue, and frames the stack refuses, are dropped and counted.
//
// # Frame Format
//
//	offset  size  field
//	0       2     magic 0x057B (little endian)
//	2       1     format (1 = ADC/DAC blocks)
//	3       1     number of blocks
//	4       4     sequence number of the first block (little endian)
//	8       ...   blocks: ADC0, ADC1, DAC0, DAC1, BatchSize u16 LE each
//
// An unspecified target (0.0.0.0:0) disables streaming and discards the backlog.
package stream
