// Package worker runs image operations as background jobs.
//
// A job arrives on a RabbitMQ queue as JSON:
//
//	{
//	  "id": "optional, a UUID is generated when empty",
//	  "operation": "thumbnail",
//	  "sourceKey": "raw/photo.jpg",
//	  "deleteSource": false,
//	  "outputs": [
//	    {"key": "thumbs/photo-128.jpg", "options": {"width": 128}},
//	    {"key": "thumbs/photo-512.jpg", "options": {"width": 512, "quality": 85}}
//	  ]
//	}
//
// The Processor downloads the source from S3 into a scratch directory, runs
// the operation once per output (bounded by the configured concurrency),
// uploads every result and publishes a Status carrying presigned URLs. The
// scratch directory is always removed.
//
// Status messages go to a direct exchange: PROCESSING when work starts, then
// PROCESSED or FAILED. FAILED carries the error kind.
//
// # Acknowledgement
//
// Successful jobs are acked. Malformed jobs and image tool failures are
// rejected without requeue since they would fail again. Storage failures,
// other than a missing object, are requeued.
package worker
