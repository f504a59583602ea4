package speech

const defaultEngine = EngineSay
