package disc

// SampleRate is the number of samples per second. All Redbook audio
// CDs use 44.1KHz.
const SampleRate = 44100

// BytesPerSample is 2 bytes, representing signed 16-bit samples.
const BytesPerSample = 2

// Channels is the number of audio channels in the data. All Redbook
// audio CDs are stereo.
//
// The table of contents can flag a track as four-channel, but no known
// drives or discs support it, so playback always treats audio as stereo.
const Channels = 2

// SectorsPerSecond is the number of audio frames in one second of audio.
// An audio frame is the smallest valid unit of length for a track, defined
// as 1/75th of a second. Redbook track offsets are specified in MM:SS:FF.
//
// Note that this definition of frame is interchangeable with sector.
const SectorsPerSecond = 75

// SamplesPerSector is the number of 16-bit samples per channel in one
// sector of audio (588).
const SamplesPerSector = SampleRate / SectorsPerSecond

// BytesPerSector is the number of bytes of audio contained in one sector of
// CD data (and equivalently in one frame of samples), 2352 bytes.
const BytesPerSector = SampleRate * Channels * BytesPerSample / SectorsPerSecond

// BytesPerDataSector is the user data size of a cooked Mode 1 sector.
const BytesPerDataSector = 2048

// PregapSectors is the two second offset between absolute disc time
// and logical sector 0.
const PregapSectors = 2 * SectorsPerSecond
