// Package runinfo parses the XML run-metadata files that accompany an
// Illumina run directory: RunInfo.xml (read structure, flowcell layout,
// tile list), RunParameters.xml/runParameters.xml (instrument software
// identity, run start date), and, as a last resort, config.xml (the
// same fields, for older run layouts that carry them nowhere else).
package runinfo
