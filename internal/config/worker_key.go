package config

type WorkerKeyStruct struct {
	PersistExamStatusQueue string
}

var WorkerKey = &WorkerKeyStruct{
	PersistExamStatusQueue: "persist_exam_status_queue",
}
