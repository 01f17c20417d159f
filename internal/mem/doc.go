// Package mem allocates cache-line aligned buffers for resident vector chunks.
package mem
